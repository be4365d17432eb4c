// Package staging manages the S3 area that sits between an unload and a copy:
// where each table's files go, which key encrypts them, and how they are
// removed afterwards. It also fetches job files stored in S3.
package staging
