// Package stores provides durable storage backends. The SQLite audit
// store keeps the trail of every propagation task outcome.
package stores
