package config

type WorkerKeyStruct struct {
	RecomputeComplianceQueue string
}

var WorkerKey = &WorkerKeyStruct{
	RecomputeComplianceQueue: "recompute_compliance_queue",
}
