// Package client talks to a running "mmrunner serve": it reads the
// display snapshot, starts and cancels runs, and follows the event stream.
//
//	c, err := client.New("http://127.0.0.1:8080", client.WithToken(token))
//	runID, err := c.Run(ctx, "latest")
//	stream, err := c.Events(ctx)
//	defer stream.Close()
//	for {
//	    msg, err := stream.Next()
//	    ...
//	}
package client
