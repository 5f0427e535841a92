// Package durable runs asynchronous calculations as Temporal workflows.
//
// Each job is one CalculationWorkflow execution whose workflow ID is the
// job ID. The workflow runs a single RunCalculation activity on a worker
// that owns the engine. Client errors (invalid input, engine rejections)
// fail the workflow immediately; server errors are retried by Temporal.
//
// [Queue] implements jobs.Queue on top of a Temporal client, so the HTTP
// and MCP surfaces work the same whether jobs run in-process or on a
// separate worker fleet.
package durable
