/*
Package observability provides tools for monitoring trading sessions.

It composes domain.LifecycleHooks so that several observers (structured logs,
metrics, a terminal view) can watch the same client, and ships a logging observer.
*/
package observability
