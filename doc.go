// Package metab holds the file plumbing shared by the amplicon pipeline stages:
// listing and opening read files on local disk or in Google Storage,
// transparent decompression, and delimiter detection for tables produced by
// external tools.
//
// The stages themselves live in subpackages and are driven by the batch
// commands under cmd/.
package metab
