// Package publishing implements the final workflow stage: moving the
// rendered video into the library under a presentable filename and clearing
// the item's staging directory.
package publishing
