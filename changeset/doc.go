/*
Package changeset implements the state delta algebra used by both channel
participants.

A ChangeOp is the net effect on one field of a resource: None, Plus, Minus,
Update or Deletion. Ops of the numeric family (Plus, Minus) compose with each
other and the value family (Update, Deletion) composes with itself. None is
the identity of both. Mixing the two families fails with errors.ErrMerge.

FieldChanges groups the ops of one resource by field path and ChangeSetMut
groups FieldChanges by resource address. Both are ordered lists with lookup
by key. A merge keeps the order of the first input and appends the entries
found only in the second one, so that serialization stays deterministic.

A ChangeSet is the frozen, validated form of a ChangeSetMut.
*/
package changeset
