// Package image resolves firmware images for the B003 bootloader into
// in-memory buffers.
//
// # Sources
//
// Two kinds of Source exist:
//
//   - Local: a file chosen by the operator (FromFile, FromBytes). The zero
//     value, NoFile, means nothing has been chosen yet.
//   - Remote: a URL matching ^https?://.+\.bin$ (case-insensitive). Remote
//     images are untrusted by definition and must be flagged to the
//     operator with UntrustedWarning before flashing.
//
// Images are raw .bin files; no container format is parsed.
//
// # Usage
//
// Resolve a local file:
//
//	img, err := image.FromFile("firmware.bin").Resolve(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(img.Summary())
//
// Resolve an external image passed as ?image=...:
//
//	src, ok := image.FromQuery(r.URL.Query())
//	if ok {
//	    fmt.Println(src.Warning())
//	    img, err := src.Resolve(ctx)
//	}
//
// # Error Handling
//
//   - ErrSourceUnavailable: no file supplied, unreadable file, or network failure
//   - *FetchError: the server answered with a non-2xx status
//   - ErrUntrustedURL: ParseRemote was given a URL outside the trusted pattern
//
// Resolution never retries and does not limit image size.
package image
