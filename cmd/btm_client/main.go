// btm_client bridges stdin/stdout to a running btm server's TCP REPL.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"

	"github.com/sahibgoa/b-tree-index-manager/pkg/config"
)

// bridge pumps server output to stdout while feeding stdin to the server.
// It returns once stdin is exhausted and the server has said its last word.
func bridge(conn net.Conn) error {
	received := make(chan error, 1)
	go func() {
		_, err := io.Copy(os.Stdout, conn)
		received <- err
	}()

	_, err := io.Copy(conn, os.Stdin)
	// Stdin is done; half-close so the server sees EOF and hangs up, then
	// drain whatever output is still in flight.
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.CloseWrite()
	}
	if recvErr := <-received; err == nil {
		err = recvErr
	}
	return err
}

// Connect to the database server and run a session against it.
func main() {
	var port = flag.Int("p", 0, "port number")
	flag.Parse()
	if *port == 0 {
		fmt.Printf("usage: ./%s_client -p <port>\n", config.DBName)
		return
	}
	conn, err := net.Dial("tcp", fmt.Sprintf(":%v", *port))
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()
	if err := bridge(conn); err != nil {
		log.Fatal(err)
	}
}
