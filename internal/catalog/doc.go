// Package catalog parses release manifests into versions and per-platform
// download records, and answers which version to play on this machine.
//
// # Manifest
//
// A manifest is a JSON document listing versions, each with an id, a release
// label, a stability flag and its platform downloads:
//
//	{"versions": [{
//	    "id": "12", "releaseNum": "0.6.1", "stable": true,
//	    "downloads": [{
//	        "os": "linux", "arch": "amd64",
//	        "url": "https://example.org/thrive_0.6.1_linux.7z",
//	        "fileName": "thrive_0.6.1_linux.7z",
//	        "hash": "<sha3-256 hex>",
//	        "folderName": "thrive_0.6.1_linux"
//	    }]
//	}]}
//
// # Selection
//
// Recommended picks the stable version with the highest release label, using
// semantic version ordering. DownloadFor matches the OS exactly; a record
// that names an architecture must match it as well.
//
// # Signatures
//
// Loader can require a detached OpenPGP signature next to the manifest
// ("<manifest>.sig"). Verification happens before parsing.
package catalog
