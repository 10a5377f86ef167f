// Package services defines the error taxonomy shared by the render
// pipeline stages and the context annotations used to correlate logs with
// jobs and stages.
package services
