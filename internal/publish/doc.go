// Package publish pushes encoded HLS output to S3-compatible object storage.
//
// Objects live under videos/{folderLabel}/{jobID}/. Segments are uploaded in
// playlist order and the manifest always goes last, so a reader that can see
// a manifest can also fetch every segment it references. Only .ts and .m3u8
// files are ever uploaded.
package publish
