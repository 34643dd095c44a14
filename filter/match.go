package filter

// MatchesInstanceID reports whether any instance filter selects id.
func (f *Filter) MatchesInstanceID(id string) bool {
	return len(f.instanceNodes(id)) > 0
}

// MatchesJob reports whether a job, identified by its name, is selected.
func (f *Filter) MatchesJob(instanceID, jobName string) bool {
	return len(f.jobNodes(instanceID, jobName)) > 0
}

// MatchesPE reports whether a processing element of a selected job is selected.
func (f *Filter) MatchesPE(instanceID, jobName, peID string) bool {
	return len(f.peNodes(instanceID, jobName, peID)) > 0
}

// MatchesOperator reports whether an operator of a selected PE is selected.
func (f *Filter) MatchesOperator(instanceID, jobName, peID, operator string) bool {
	return len(f.operatorNodes(instanceID, jobName, peID, operator)) > 0
}

// MatchesPort reports whether a port of a selected operator is selected.
func (f *Filter) MatchesPort(instanceID, jobName, peID, operator string, kind PortKind, index string) bool {
	return len(f.portNodes(instanceID, jobName, peID, operator, kind, index)) > 0
}

// MatchesPEMetric reports whether a PE metric is selected.
func (f *Filter) MatchesPEMetric(instanceID, jobName, peID, metric string) bool {
	for _, p := range f.peNodes(instanceID, jobName, peID) {
		if p.metrics.match(metric) {
			return true
		}
	}
	return false
}

// MatchesOperatorMetric reports whether an operator metric is selected.
func (f *Filter) MatchesOperatorMetric(instanceID, jobName, peID, operator, metric string) bool {
	for _, o := range f.operatorNodes(instanceID, jobName, peID, operator) {
		if o.metrics.match(metric) {
			return true
		}
	}
	return false
}

// MatchesPortMetric reports whether a port metric is selected.
func (f *Filter) MatchesPortMetric(instanceID, jobName, peID, operator string, kind PortKind, index, metric string) bool {
	for _, p := range f.portNodes(instanceID, jobName, peID, operator, kind, index) {
		if p.metrics.match(metric) {
			return true
		}
	}
	return false
}

// MatchesLog reports whether a log level of a selected instance is selected.
func (f *Filter) MatchesLog(instanceID, level string) bool {
	for _, inst := range f.instanceNodes(instanceID) {
		for _, l := range inst.logs {
			if l.match(level) {
				return true
			}
		}
	}
	return false
}

func (f *Filter) instanceNodes(id string) []*instanceNode {
	var out []*instanceNode
	for _, inst := range f.instances {
		if inst.id.match(id) {
			out = append(out, inst)
		}
	}
	return out
}

func (f *Filter) jobNodes(instanceID, jobName string) []*jobNode {
	var out []*jobNode
	for _, inst := range f.instanceNodes(instanceID) {
		for _, j := range inst.jobs {
			if j.name.match(jobName) {
				out = append(out, j)
			}
		}
	}
	return out
}

func (f *Filter) peNodes(instanceID, jobName, peID string) []*peNode {
	var out []*peNode
	for _, j := range f.jobNodes(instanceID, jobName) {
		for _, p := range j.pes {
			if p.id.match(peID) {
				out = append(out, p)
			}
		}
	}
	return out
}

func (f *Filter) operatorNodes(instanceID, jobName, peID, operator string) []*operatorNode {
	var out []*operatorNode
	for _, p := range f.peNodes(instanceID, jobName, peID) {
		for _, o := range p.operators {
			if o.name.match(operator) {
				out = append(out, o)
			}
		}
	}
	return out
}

func (f *Filter) portNodes(instanceID, jobName, peID, operator string, kind PortKind, index string) []*portNode {
	var out []*portNode
	for _, o := range f.operatorNodes(instanceID, jobName, peID, operator) {
		for _, p := range o.ports[kind] {
			if p.index.match(index) {
				out = append(out, p)
			}
		}
	}
	return out
}
