// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the Wayland wire format: the 8-byte message
// header, the argument codec, 24.8 fixed-point numbers and a non-blocking
// unix socket connection that carries file descriptors as SCM_RIGHTS
// ancillary data.
//
// Messages are encoded in host byte order. A message is a header followed by
// its arguments, each padded to 32 bits:
//
//	word 0: sender object id
//	word 1: size (upper 16 bits, header included) | opcode (lower 16 bits)
//
// File descriptors carry no payload in the message body. They are queued on
// the connection and popped in order while a message is decoded, which is why
// decoding needs the message signature.
//
// Descriptors are wrapped in FD, a single-use ownership handle. Whoever holds
// an FD either takes the raw descriptor out of it (handing ownership on) or
// closes it. Writing an FD argument to a Conn takes it, and the Conn closes
// the descriptor once it has been sent.
package wire
