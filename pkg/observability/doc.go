/*
Package observability provides tools for monitoring the Chirality runtime.

It includes lifecycle hooks for auditing transitions and guarded writes,
structured logging of those events, and Prometheus collectors fed by the same hooks.
*/
package observability
