// Package upload streams file uploads posted to stream-variable URLs into
// their registered receivers.
//
// Upload targets are painted by components as URLs of the form
//
//	app://APP/UPLOAD/{paintableID}/{variableName}/{securityKey}
//
// The client posts the file to that path, either as a multipart form or as
// the raw request body (XHR2 style). The Dispatcher parses the path,
// resolves the receiver through the communication manager, checks the
// security key before reading the payload and copies the bytes into the
// receiver's output stream.
//
// # Receivers
//
// Any streamvar.StreamVariable can receive uploads. StoreReceiver adapts a
// Store (DiskStore, S3Store) so that uploads land in temporary storage and
// can be claimed later:
//
//	store, _ := upload.NewDiskStore("/var/tmp/uploads", 50<<20)
//	rcv := upload.NewStoreReceiver(ctx, store)
//	rcv.OnSaved = func(id string, ev streamvar.StreamingEndEvent) {
//	    file, _ := store.Claim(ctx, id)
//	    defer file.Close()
//	    // Use file.Path or file.Reader
//	}
//	root.Add(component.NewUpload("Attachment", rcv))
//
// # Limits
//
// Config.MaxFileSize bounds the bytes copied into a receiver; exceeding it
// fails the upload with ErrTooLarge. Progress events are throttled to
// Config.ProgressInterval.
package upload
