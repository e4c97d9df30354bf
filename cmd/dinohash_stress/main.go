package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"dinohash/pkg/codec"
	"dinohash/pkg/hash"

	"github.com/google/uuid"
)

var STARTUP = 100 * time.Millisecond
var MAX_DELAY int64 = 10

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

// jitter returns a small random delay, used to interleave workload lines
// issued from different threads.
func jitter() time.Duration {
	return time.Duration(rand.Int63n(MAX_DELAY)+1) * time.Millisecond
}

// parseWorkload reads a workload file of newline-separated REPL commands.
func parseWorkload(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var workload []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		workload = append(workload, scanner.Text())
	}
	return workload, scanner.Err()
}

// handleWorkload feeds every n-th workload line starting at idx into c,
// jittering between lines so that concurrent threads interleave.
func handleWorkload(c chan string, wg *sync.WaitGroup, workload []string, idx int, n int) {
	defer wg.Done()
	for i := idx; i < len(workload); i += n {
		time.Sleep(jitter())
		c <- workload[i]
	}
}

// Drive the hash index concurrently with a workload file, optionally
// verifying its structural invariants once the workload drains.
func main() {
	var dbFlag = flag.String("db", "data/stress.db", "index file")
	var workloadFlag = flag.String("workload", "", "workload file (required)")
	var nFlag = flag.Int("n", 1, "number of threads to run (default: 1)")
	var verifyFlag = flag.Bool("verify", false, "enable to verify index state at the end of the workload")
	flag.Parse()

	os.Remove(*dbFlag)
	index, err := hash.OpenIndex(*dbFlag, codec.Int64Codec, codec.Int64Codec, hash.Int64Comparator, hash.XxHasher)
	if err != nil {
		panic(err)
	}
	defer index.Close()
	setupCloseHandler(index)

	hRepl, err := hash.HashReplOver(index)
	if err != nil {
		fmt.Println(err)
		return
	}
	c := make(chan string)
	go hRepl.RunChan(c, uuid.New(), "")
	time.Sleep(STARTUP)

	if *workloadFlag == "" {
		fmt.Println("no workload file given")
		return
	}
	workload, err := parseWorkload(*workloadFlag)
	if err != nil {
		fmt.Println(err)
		return
	}
	time.Sleep(STARTUP)

	var wg sync.WaitGroup
	for i := 0; i < *nFlag; i++ {
		wg.Add(1)
		go handleWorkload(c, &wg, workload, i, *nFlag)
	}
	wg.Wait()

	if *verifyFlag {
		if err := index.VerifyIntegrity(); err != nil {
			fmt.Println("verify failed:", err)
			return
		}
		fmt.Println("verify passed")
	}
}
