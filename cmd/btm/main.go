package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/sahibgoa/b-tree-index-manager/pkg/config"
	"github.com/sahibgoa/b-tree-index-manager/pkg/database"
	"github.com/sahibgoa/b-tree-index-manager/pkg/repl"
)

// Default port 8335 (BEES).
const DEFAULT_PORT int = 8335

// Listens for SIGINT or SIGTERM and closes the database.
func setupCloseHandler(db *database.Database) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("closehandler invoked")
		db.Close()
		os.Exit(0)
	}()
}

// Start listening for connections at port `port`, running the repl on each.
func startServer(r *repl.REPL, prompt string, port int) {
	handleConn := func(c net.Conn) {
		clientId := uuid.New()
		defer c.Close()
		r.Run(clientId, prompt, c, c)
	}
	listener, err := net.Listen("tcp", fmt.Sprintf(":%v", port))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%v server started listening on localhost:%v\n", config.DBName,
		listener.Addr().(*net.TCPAddr).Port)
	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Print(err)
			continue
		}
		go handleConn(conn)
	}
}

// Start the database.
func main() {
	// Set up flags.
	var promptFlag = flag.Bool("c", true, "use prompt?")
	var dbFlag = flag.String("db", "data/", "DB folder")
	var serverFlag = flag.Bool("server", false, "serve the REPL over TCP instead of stdin")
	var portFlag = flag.Int("p", DEFAULT_PORT, "port number")
	flag.Parse()

	// Open the db.
	db, err := database.Open(*dbFlag)
	if err != nil {
		panic(err)
	}

	// Setup close conditions.
	defer db.Close()
	setupCloseHandler(db)

	// Run the REPL, either over TCP or locally on stdin.
	prompt := config.GetPrompt(*promptFlag)
	r := database.DatabaseRepl(db)
	if *serverFlag {
		startServer(r, prompt, *portFlag)
	} else {
		r.Run(uuid.New(), prompt, os.Stdin, os.Stdout)
	}
}
