// Package manifest rewrites Cargo.toml so a crate builds as a static library.
//
// [Patch] is a pure transform over the decoded TOML document:
//
//   - lib.crate-type is always overwritten with ["staticlib"]
//   - profile.release.panic is set to "abort" unless the crate already sets it
//
// Every other key is carried over untouched. [PatchFile] wraps it with
// reading and writing the file in place. Patching an already patched manifest
// produces byte-identical output, so re-running against the same extracted
// tree is safe.
package manifest
