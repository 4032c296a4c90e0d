// Package services holds the document pipeline engines: ingestion,
// vectorisation, metadata extraction, synonym expansion, retrieval and
// answer synthesis. Each service implements a driving port and reaches
// storage, object storage and model providers only through driven ports.
package services
