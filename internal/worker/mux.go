package worker

import "github.com/hibiken/asynq"

// NewServeMux registers every task type this module defines onto a
// fresh asynq.ServeMux; cmd/worker wires the result into asynq.Server.Run.
func NewServeMux(p *TaskProcessor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskProcessDocument, p.ProcessDocument)
	mux.HandleFunc(TaskOCRChunk, p.OCRChunk)
	mux.HandleFunc(TaskMergeAndFinalize, p.MergeAndFinalize)
	return mux
}
