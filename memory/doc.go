// Package memory keeps what the vault agent learned about a user: ReAct
// traces, notable conversation turns and the outcome of vault operations.
//
// Memories are embedded and kept in a vector store namespaced by user ID.
// The engine calls Manager.Retrieve before each run and appends the result
// to the system prompt; it records traces and the exchange afterwards.
// OperationRecorder feeds settled and failed operations from an
// orchestrator.Session into the same store, so "why did my withdraw fail
// yesterday" has an answer.
//
// The bundled pieces are an embedded chromem-go store and a deterministic
// hash embedder. Both satisfy the Store and Embedder interfaces and can be
// swapped for a hosted vector database and model.
package memory
