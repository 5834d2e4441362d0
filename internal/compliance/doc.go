// Package compliance derives required vaccine doses and compliance flags.
//
// Everything here is pure computation over plain records: no storage, no
// network, and "today" plus the due-date jitter source are always injected.
// Storage orchestration lives in the service package.
package compliance
