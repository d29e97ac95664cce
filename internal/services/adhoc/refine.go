package adhoc

import domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"

const probeSuccessMetric = "probe_success"

// StatusRefiner picks the terminal status for a probe whose first result has arrived.
type StatusRefiner func(res domain.DecodedResult) domain.ProbeStatus

// AlwaysSuccess marks every arrived result as success, whatever the execution reported.
// Results of failed executions therefore show up as success unless ProbeSuccessRefiner is used.
func AlwaysSuccess(domain.DecodedResult) domain.ProbeStatus { return domain.StatusSuccess }

// ProbeSuccessRefiner reports Error when the probe_success series says the execution failed.
// Results without that series keep the success default.
func ProbeSuccessRefiner(res domain.DecodedResult) domain.ProbeStatus {
	if ok, found := ProbeSuccess(res.Metrics); found && !ok {
		return domain.StatusError
	}
	return domain.StatusSuccess
}

// ProbeSuccess reads the probe_success gauge. found is false when no sample exists.
func ProbeSuccess(series []domain.MetricSeries) (ok bool, found bool) {
	for _, s := range series {
		if s.Name != probeSuccessMetric {
			continue
		}
		for _, sample := range s.Samples {
			if sample.Value != 1 {
				return false, true
			}
			found = true
		}
	}
	return found, found
}
