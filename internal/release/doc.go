// Package release acquires and installs game releases: it downloads an
// archive to the staging directory, verifies its content hash, unpacks it
// into the content-addressed install cache and finds the executable inside.
//
// # Integrity Model
//
// Nothing is installed without verification:
//   - Archives are streamed to "<name>.tmp" and renamed into place, so an
//     interrupted download never leaves a file under the final name
//   - The archive is hashed (SHA3-256 by default) before extraction
//   - Extraction goes to a hidden temporary folder that is renamed into the
//     cache only when the whole archive unpacked cleanly
//   - A failed extraction deletes the source archive so the next attempt
//     downloads a fresh copy
//
// # Cache Policy
//
// A release is installed when installed/<folderName> exists. Its content is
// not re-hashed on later plays. With strict mode the folder must also carry
// a ".content-hash" marker matching the record's hash.
//
// # Layout
//
//	<data dir>/
//	    staging/download/<fileName>   downloaded archives
//	    installed/<folderName>/       unpacked releases
//
// # Components
//   - Downloader: HTTP download with progress, cancellation and retries
//   - Verifier: streaming SHA3-256 (or SHA-256) verification
//   - Extractor: 7z, zip and tar.gz extraction
//   - Cache: install cache decisions and installation
//   - Locator: finds the launch executable in an unpacked tree
package release
