// Package ecee reads and writes a slave's SII/EEPROM over the ESC register
// interface. It is a config-time collaborator, not part of the cyclic core:
// it is used once, while a slave is being brought up, to recover identity
// information (vendor/product IDs, sync manager defaults) before the slave
// ever takes part in a request FSM cycle.
package ecee

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zultron/etherlabmaster/ecad"
	"github.com/zultron/etherlabmaster/ecfr"
	"github.com/zultron/etherlabmaster/ecmd"
)

type blindEEPROM struct {
	addr      ecfr.DatagramAddress
	commander ecmd.Commander
	closed    bool
}

type EEPROM interface {
	ReadWord(addr uint32) (word uint16, err error)
	WriteWord(addr uint32, word uint16) (err error)
	Close() error
}

func New(commander ecmd.Commander, addr ecfr.DatagramAddress) (EEPROM, error) {
	ee := &blindEEPROM{
		addr:      addr,
		commander: commander,
	}

	err := ee.waitForIdle(0)
	if err != nil {
		return nil, err
	}

	return ee, nil
}

func (ee *blindEEPROM) waitForIdle(timeout time.Duration) error {
	if timeout == 0 {
		timeout = 250 * time.Millisecond
	}

	tot := time.Now().Add(timeout)

	for {
		addr := ee.addr
		addr.SetOffset(ecad.EEPROMControlStatus)
		rb, err := ecmd.ExecuteRead(ee.commander, ecfr.FPRD, addr, 2, 1)
		if err != nil {
			return err
		}

		if rb[1]&0x80 == 0 {
			return nil
		}

		if time.Now().After(tot) {
			return fmt.Errorf("ecee: timed out waiting for EEPROM idle")
		}
	}
}

func (ee *blindEEPROM) ReadWord(addr uint32) (word uint16, err error) {
	if ee.closed {
		err = errors.New("ecee: eeprom is already closed")
		return
	}

	err = ee.waitForIdle(0)
	if err != nil {
		return
	}

	dgaddr := ee.addr

	// write EEPROM address to ESC
	dgaddr.SetOffset(ecad.EEPROMAddress)
	wb := make([]byte, 4)
	wb[0] = uint8(addr)
	wb[1] = uint8(addr >> 8)
	wb[2] = uint8(addr >> 16)
	wb[3] = uint8(addr >> 24)
	err = ecmd.ExecuteWrite(ee.commander, ecfr.FPWR, dgaddr, wb, 1)
	if err != nil {
		return
	}

	// write "read command"
	dgaddr.SetOffset(ecad.EEPROMControlStatus)
	wb = []byte{0x00, 0x01} // read command
	err = ecmd.ExecuteWrite(ee.commander, ecfr.FPWR, dgaddr, wb, 1)
	if err != nil {
		return
	}

	err = ee.waitForIdle(0)
	if err != nil {
		return
	}

	// check error bits
	dgaddr.SetOffset(ecad.EEPROMControlStatus)
	var rb []byte
	rb, err = ecmd.ExecuteRead(ee.commander, ecfr.FPRD, dgaddr, 2, 1)
	if err != nil {
		return
	}

	if rb[1]&0xE0 != 0x00 {
		err = fmt.Errorf("ecee: EEPROM status word bits indicate error, bytes are % x", rb)
		return
	}

	dgaddr.SetOffset(ecad.EEPROMData)
	rb, err = ecmd.ExecuteRead(ee.commander, ecfr.FPRD, dgaddr, 4, 1)
	if err != nil {
		return
	}

	word = uint16(rb[0]) | uint16(rb[1])<<8
	return
}

func (ee *blindEEPROM) WriteWord(addr uint32, word uint16) (err error) {
	if ee.closed {
		err = errors.New("ecee: eeprom is already closed")
		return
	}

	err = ee.waitForIdle(0)
	if err != nil {
		return
	}

	dgaddr := ee.addr

	// write EEPROM address to ESC
	dgaddr.SetOffset(ecad.EEPROMAddress)
	wb := make([]byte, 4)
	wb[0] = uint8(addr)
	wb[1] = uint8(addr >> 8)
	wb[2] = uint8(addr >> 16)
	wb[3] = uint8(addr >> 24)
	err = ecmd.ExecuteWrite(ee.commander, ecfr.FPWR, dgaddr, wb, 1)
	if err != nil {
		return
	}

	// write data
	dgaddr.SetOffset(ecad.EEPROMData)
	wb = []byte{uint8(word), uint8(word >> 8)}
	err = ecmd.ExecuteWrite(ee.commander, ecfr.FPWR, dgaddr, wb, 1)
	if err != nil {
		return
	}

	// write "write command"
	dgaddr.SetOffset(ecad.EEPROMControlStatus)
	wb = []byte{0x01, 0x02} // write command
	err = ecmd.ExecuteWrite(ee.commander, ecfr.FPWR, dgaddr, wb, 1)
	if err != nil {
		return
	}

	err = ee.waitForIdle(0)
	if err != nil {
		return
	}

	// check error bits
	dgaddr.SetOffset(ecad.EEPROMControlStatus)
	var rb []byte
	rb, err = ecmd.ExecuteRead(ee.commander, ecfr.FPRD, dgaddr, 2, 1)
	if err != nil {
		return
	}

	if rb[1]&0xE0 != 0x00 {
		err = fmt.Errorf("ecee: EEPROM status word bits indicate error, bytes are % x", rb)
		return
	}

	logrus.WithField("addr", addr).Debug("ecee: EEPROM word written")
	return
}

func (ee *blindEEPROM) Close() error {
	ee.closed = true
	return nil
}
