// Package warehouse talks to the source and destination clusters over the
// PostgreSQL wire protocol. It knows how to check reachability and
// existence, derive and run table DDL, list schemas and tables, and issue
// the UNLOAD and COPY statements that move data through S3.
package warehouse
