// Package crates provides an HTTP client for the crates.io API.
//
// # Overview
//
// The client covers the three registry calls the signature pipeline needs:
//
//   - [Client.ListTopCrates]: paginated listing sorted by all-time downloads
//   - [Client.FetchCrate]: latest stable version of one crate
//   - [Client.DownloadCrate]: the .crate source archive from static.crates.io
//
// # Usage
//
//	client := crates.NewClient(crates.Options{})
//
//	top, err := client.ListTopCrates(ctx, 100)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	dl, err := client.DownloadCrate(ctx, top[0], "", "crates")
//	fmt.Println(dl.ArchivePath) // crates/syn-2.0.87.crate
//
// # User-Agent
//
// The client includes a User-Agent header as requested by crates.io policy.
package crates
