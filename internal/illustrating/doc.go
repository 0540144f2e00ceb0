// Package illustrating implements the second workflow stage: generating a
// visual description and an image for every scene, carrying the previous
// scene's finished image id forward for reference continuity.
package illustrating
