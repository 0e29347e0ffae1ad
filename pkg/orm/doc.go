// Package orm maps the tables of a MySQL or PostgreSQL schema onto
// in-memory models by reading the live catalog.
//
// Relationships between tables are stored in the catalog itself: a table
// comment such as
//
//	table|mappings:posts(one_many),groups(many_many)
//
// lists the tables it relates to, a foreign key column carries the comment
// "fk:<table>", and junction tables for many-to-many relations are marked
// with the comment "map". Associate, Dissociate and Associated use these
// mappings to link records without any schema declared in code.
//
// Table definitions and rows can be exported to and imported from SQL,
// XML, YAML and CSV. Imports into an existing table run under a Swap that
// restores the original table when the replacement fails.
package orm
