// Package jskv stores kvstore data in a NATS JetStream KeyValue bucket.
//
// Every pool entry owns one NATS connection and a handle on the bucket. The bucket is
// created on first use when it does not exist, with limit markers enabled so keys can
// carry their own TTL.
//
// JetStream keys are restricted to a small alphabet, so keys are escaped on the way in
// and unescaped on the way out: any byte outside [-/_a-zA-Z0-9] becomes "=HH". Callers
// keep using redis-style names such as "sensor:42".
//
// Scans list the bucket's keys, filter them with a redis-style glob and page through the
// sorted result. The cursor is a decimal offset into that listing. A connection keeps the
// listing taken at the start of a walk and serves later pages from it, so a walk that
// stays on one pooled connection lists the bucket once. A walk whose pages land on
// different connections lists again and can see shifted pages; the kvstore facade removes
// the duplicates this produces. Keys are escaped into single JetStream tokens, so a glob
// prefix cannot be pushed down as a subject filter.
package jskv
