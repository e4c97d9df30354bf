package main

import (
	"flag"
	"fmt"

	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"dinohash/pkg/codec"
	"dinohash/pkg/config"
	"dinohash/pkg/list"
	"dinohash/pkg/pager"
	"dinohash/pkg/repl"

	"dinohash/pkg/concurrency"
	"dinohash/pkg/hash"

	"github.com/google/uuid"
)

// Default port 8335 (BEES).
const DEFAULT_PORT int = 8335

// setupCloseHandler listens for SIGINT or SIGTERM and closes index before exiting.
func setupCloseHandler(index *hash.HashIndex[int64, int64]) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("closehandler invoked")
		index.Close()
		os.Exit(0)
	}()
}

// startServer starts listening for connections at port `port`, running the
// REPL over each one.
func startServer(repl *repl.REPL, tm *concurrency.TransactionManager, prompt string, port int) {
	handleConn := func(c net.Conn) {
		clientId := uuid.New()
		defer c.Close()
		if tm != nil {
			defer tm.Commit(clientId)
		}
		repl.Run(clientId, prompt, c, c)
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

// Start the hash index REPL/server.
func main() {
	var promptFlag = flag.Bool("c", true, "use prompt?")
	var projectFlag = flag.String("project", "", "choose project: [go,pager,hash,concurrency] (required)")
	var dbFlag = flag.String("db", "data/dinohash.db", "index file")
	var portFlag = flag.Int("p", DEFAULT_PORT, "port number")
	flag.Parse()

	prompt := config.GetPrompt(*promptFlag)
	repls := make([]*repl.REPL, 0)

	var tm *concurrency.TransactionManager
	server := false

	switch *projectFlag {
	case "go":
		l := list.NewList()
		repls = append(repls, list.ListRepl(l))

	case "pager":
		pRepl, err := pager.PagerRepl()
		if err != nil {
			fmt.Println(err)
			return
		}
		repls = append(repls, pRepl)

	case "hash":
		hRepl, err := hash.HashRepl(*dbFlag)
		if err != nil {
			fmt.Println(err)
			return
		}
		repls = append(repls, hRepl)

	case "concurrency":
		server = true
		index, err := hash.OpenIndex(*dbFlag, codec.Int64Codec, codec.Int64Codec, hash.Int64Comparator, hash.XxHasher)
		if err != nil {
			fmt.Println(err)
			return
		}
		defer index.Close()
		setupCloseHandler(index)

		lm := concurrency.NewResourceLockManager()
		tm = concurrency.NewTransactionManager(lm)
		repls = append(repls, hash.TransactionREPL(index, tm))

	default:
		fmt.Println("must specify -project [go,pager,hash,concurrency]")
		return
	}

	r, err := repl.CombineRepls(repls)
	if err != nil {
		fmt.Println(err)
		return
	}

	if server {
		startServer(r, tm, prompt, *portFlag)
	} else {
		r.Run(uuid.New(), prompt, nil, nil)
	}
}
