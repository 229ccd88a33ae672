// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package internal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

// Singleton log writer. Writes to stdout, or stderr if selected, and optionally to a file.
// Does not add prefixes, or force newlines.

var logMutex sync.Mutex

// The console stream to log into
var logConsole io.Writer = os.Stdout

// The optional additional file to log into
var logFile *bufio.Writer
var logFileOS *os.File

// Sends console log output to stderr, keeping stdout free for data
func LogToStderr() {
	logMutex.Lock()
	defer logMutex.Unlock()
	logConsole = os.Stderr
}

// Enables logging to file
func LogAlsoToFile(fileName string) (err error) {
	if err = LogClose(); err != nil {
		return err
	}
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	logMutex.Lock()
	defer logMutex.Unlock()
	logFileOS = f
	logFile = bufio.NewWriter(logFileOS)
	return nil
}

// Flushes and closes the log file, if any
func LogClose() error {
	logMutex.Lock()
	defer logMutex.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Flush()
	if cerr := logFileOS.Close(); err == nil {
		err = cerr
	}
	logFile, logFileOS = nil, nil
	return err
}

type teeWriter struct{}

func (teeWriter) Write(p []byte) (n int, err error) {
	logMutex.Lock()
	defer logMutex.Unlock()
	n, err = logConsole.Write(p)
	if err != nil || logFile == nil {
		return n, err
	}
	return logFile.Write(p)
}

// Returns a writer into the log, for passing down as logWriter
func LogWriter() io.Writer {
	return teeWriter{}
}

func LogPrintf(format string, args ...interface{}) (n int, err error) {
	return fmt.Fprintf(teeWriter{}, format, args...)
}

func LogPrintln(args ...interface{}) (n int, err error) {
	return fmt.Fprintln(teeWriter{}, args...)
}

func LogFatalf(format string, args ...interface{}) {
	fmt.Fprintf(teeWriter{}, format, args...)
	LogClose()
	os.Exit(1)
}

func LogSync() {
	logMutex.Lock()
	defer logMutex.Unlock()
	if logFile == nil {
		return
	}
	logFile.Flush()
	logFileOS.Sync()
}
