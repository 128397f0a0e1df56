/*
Utility library backing github.com/tredeske/sftp/usftp: a unique ID
generator (IdBuilder), an error taxonomy (uerr), levelled logging (ulog),
and the concurrency primitives (usync) the request multiplexer and file
handle are built on.
*/
package u
