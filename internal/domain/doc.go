// Package domain defines the engagement model shared by ingestion, routing
// and dispatch: users, events, display colours, outbound messages, and the
// transport contracts the core consumes.
//
// No implementation code beyond small value helpers. Interfaces live here so
// adapters can depend on the model without importing the pipeline.
package domain
