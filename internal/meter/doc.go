// Package meter reads an RX380-class power meter over Modbus.
//
// The package is layered leaf first:
//
//   - Transport: one open Modbus handle (RTU serial or TCP), backed by goburrow/modbus
//   - RegisterReader: decodes one channel per transport request
//   - RegisterMap: the ordered channel set and its decoding rules
//   - ConnectionPool: a fixed set of handles guarded by a counting permit
//   - MeterClient: reads every channel of the map into one Reading
//
// A Reading is either fully populated or not produced at all. Any channel
// failure fails the whole ReadReading call with a *PartialReadError naming
// the channel.
//
// Input registers (function code 4) are read. 32-bit kinds combine two
// consecutive words in the word order configured on the map.
package meter
