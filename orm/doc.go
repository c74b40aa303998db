/*
Package orm provides an easy to use db wrapper.

State space is broken into prefixed sections called Buckets. Each bucket
contains only one type of protobuf message, stored under the bucket prefix
joined with the primary key. Sequences give a bucket monotonic identifiers.
*/
package orm
