// Package lifecycle implements the folder-based item state machine.
//
// An item's state is the role folder it sits in (or a subfolder mirroring
// its import path under that role folder). Machine moves items between
// roles, mirrors the ancestor path beneath the destination, records and
// restores quarantine, prunes vacated folders, and refiles unfiled images
// against manifest records. The ancestor walk and depth-first first-item
// search are shared by every operation that traverses the tree.
package lifecycle
