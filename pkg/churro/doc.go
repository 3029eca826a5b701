// Package churro persists a tree of typed records in a versioned,
// hierarchical store with all-or-nothing commit.
//
// Record types embed Object (or Folder for containers) and declare their
// persisted attributes as Property values on a Type registered with a
// Registry. A Session binds one root Folder to one storage view for the
// lifetime of a transaction. Reads materialize children lazily through the
// Codec; writes through a Property, a Folder or a container wrapper mark the
// record and every ancestor dirty. When the transaction commits, the
// Session writes the dirty subtree in its prepare phase and leaves clean
// records untouched.
//
// Storage layout: an object named n in folder f is the unit f/n.churro; a
// folder named n is the directory f/n holding its own unit
// f/n/__folder__.churro. Directories without that unit are ignored.
package churro
