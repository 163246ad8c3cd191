// Package storkit is the storage abstraction layer of the filecove
// file-hosting platform.
//
// It hides heterogeneous backend semantics (multipart vs. streaming upload,
// different error shapes, different metadata models) behind one
// capability-oriented Provider contract, and layers content-addressed
// deduplication, optional at-rest encryption and compression, retrying
// health checks, per-provider usage statistics, and best-effort
// cross-provider migration on top.
//
// Concrete providers live under internal/ and register themselves when
// imported with a blank import:
//
//	import (
//	    "github.com/filecove/storkit"
//	    _ "github.com/filecove/storkit/internal/s3"       // S3, R2, Wasabi
//	    _ "github.com/filecove/storkit/internal/docstore" // MongoDB GridFS
//	)
//
// The Manager orchestrates the live providers:
//
//	mgr := storkit.NewManager(storkit.WithLogger(storkit.WrapZapLogger(log)))
//	err := mgr.AddProvider(ctx, "primary", storkit.Config{
//	    Provider:  storkit.FamilyS3,
//	    Name:      "primary",
//	    Active:    true,
//	    Bucket:    "files",
//	    Region:    "us-east-1",
//	    AccessKey: "...",
//	    SecretKey: "...",
//	})
//	res, err := mgr.Upload(ctx, data, storkit.UploadOptions{Filename: "report.pdf"}, "")
//
// Keeping concrete providers in internal/ prevents consumers from reaching
// into backend specifics and keeps the public surface small.
package storkit
