// Command kvcli is a thin client for kvserver: it encodes one command as a
// request frame, sends it over a TCP connection, decodes the response, and
// prints it. It speaks only the external wire protocol; it never imports
// the server's store or engine.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/mariamtelly/kvserver/internal/wire"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:1234", "kvserver address")
	stats := flag.Bool("stats", false, "print the dbsize and ping replies as a table instead of running a command")
	timeout := flag.Duration("timeout", 5*time.Second, "connection and round-trip timeout")
	flag.Parse()

	conn, err := net.DialTimeout("tcp", *addr, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(*timeout))

	if *stats {
		if err := printStats(conn); err != nil {
			fmt.Fprintf(os.Stderr, "stats: %v\n", err)
			os.Exit(1)
		}
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: kvcli [-addr host:port] <command> [args...]")
		os.Exit(2)
	}

	v, err := roundTrip(conn, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	printValue(v, 0)
}

// roundTrip encodes args as a request frame, writes it, and reads back
// exactly one response frame.
func roundTrip(conn net.Conn, args []string) (wire.Value, error) {
	if _, err := conn.Write(encodeRequest(args)); err != nil {
		return wire.Value{}, fmt.Errorf("write request: %w", err)
	}
	return readOneResponse(conn)
}

// printStats issues a small fixed sequence of read-only commands and
// renders the results as a table.
func printStats(conn net.Conn) error {
	rows := [][]string{}
	for _, verb := range []string{"dbsize", "ping"} {
		v, err := roundTrip(conn, []string{verb})
		if err != nil {
			return fmt.Errorf("%s: %w", verb, err)
		}
		rows = append(rows, []string{verb, formatValue(v)})
	}

	w := tablewriter.NewWriter(os.Stdout)
	w.Header("counter", "value")
	if err := w.Bulk(rows); err != nil {
		return err
	}
	return w.Render()
}

func encodeRequest(args []string) []byte {
	body := make([]byte, 4, 64)
	putU32(body[0:4], uint32(len(args)))
	for _, a := range args {
		var sz [4]byte
		putU32(sz[:], uint32(len(a)))
		body = append(body, sz[:]...)
		body = append(body, a...)
	}
	frame := make([]byte, 4, 4+len(body))
	putU32(frame[0:4], uint32(len(body)))
	frame = append(frame, body...)
	return frame
}

func putU32(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

// readOneResponse reads bytes off conn until a full response frame (the u32
// body_len prefix plus that many bytes) is buffered, then decodes it.
func readOneResponse(conn net.Conn) (wire.Value, error) {
	var buf []byte
	scratch := make([]byte, 4096)
	for {
		if len(buf) >= 4 {
			bodyLen := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
			if uint32(len(buf)-4) >= bodyLen {
				v, _, err := wire.DecodeValue(buf[4 : 4+bodyLen])
				return v, err
			}
		}
		n, err := conn.Read(scratch)
		if n > 0 {
			buf = append(buf, scratch[:n]...)
			continue
		}
		if err != nil {
			return wire.Value{}, fmt.Errorf("read response: %w", err)
		}
	}
}

func printValue(v wire.Value, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	switch v.Tag {
	case wire.TagNil:
		fmt.Println(indent + "(nil)")
	case wire.TagErr:
		fmt.Printf("%s(error) code=%d %s\n", indent, v.ErrCode, v.ErrMsg)
	case wire.TagStr:
		fmt.Printf("%s%q\n", indent, string(v.Str))
	case wire.TagInt:
		fmt.Printf("%s(integer) %d\n", indent, v.Int)
	case wire.TagDbl:
		fmt.Printf("%s(double) %g\n", indent, v.Dbl)
	case wire.TagArr:
		fmt.Printf("%s(array, %d elements)\n", indent, len(v.Arr))
		for _, e := range v.Arr {
			printValue(e, depth+1)
		}
	}
}

func formatValue(v wire.Value) string {
	switch v.Tag {
	case wire.TagNil:
		return "(nil)"
	case wire.TagStr:
		return string(v.Str)
	case wire.TagInt:
		return fmt.Sprintf("%d", v.Int)
	case wire.TagDbl:
		return fmt.Sprintf("%g", v.Dbl)
	case wire.TagErr:
		return fmt.Sprintf("error(%d): %s", v.ErrCode, v.ErrMsg)
	default:
		return fmt.Sprintf("(%d elements)", len(v.Arr))
	}
}
