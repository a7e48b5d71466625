package config

type WorkerKeyStruct struct {
	PersistViolationsQueue string
	PersistCapturesQueue   string
	PersistAnswersQueue    string
}

var WorkerKey = &WorkerKeyStruct{
	PersistViolationsQueue: "persist_violations_queue",
	PersistCapturesQueue:   "persist_captures_queue",
	PersistAnswersQueue:    "persist_answers_queue",
}
