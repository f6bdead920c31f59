package config

type WorkerKeyStruct struct {
	PersistProctorEventsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistProctorEventsQueue: "persist_proctor_events_queue",
}
