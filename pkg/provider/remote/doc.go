// Package remote implements the Provider interface for an electronic-structure
// engine running as an HTTP service. Requests and results are exchanged as
// JSON on /v1/singlepoint and /v1/optimize; HTTP failures are mapped onto
// engine errors (4xx) or server errors (5xx, network).
package remote
