package hci

import (
	"sync"

	"github.com/rigado/btstack"
	"github.com/rigado/btstack/hci/cmd"
	"github.com/rigado/btstack/hci/evt"
	"github.com/rigado/btstack/module"
)

// ControllerFactory is the module descriptor of the Controller.
var ControllerFactory = module.NewFactory(func() module.Module { return &Controller{} })

// LeBufferSize is the LE ACL buffer geometry the controller reports.
type LeBufferSize struct {
	DataPacketLength   uint16
	TotalNumDataPackets uint8
}

// leFeatureExtendedAdvertising is bit 12 of the LE feature mask.
const leFeatureExtendedAdvertising = 1 << 12

// Controller interrogates the local controller once at startup and caches
// the result. After Start every accessor is a pure read on immutable
// state. It also owns the Number_Of_Completed_Packets subscription and
// fans credits out to the single registered consumer.
type Controller struct {
	module.Base

	hci *HciLayer

	localAddr         btstack.Addr
	localVersion      cmd.ReadLocalVersionInformationRP
	supportedCommands [64]byte
	localFeatures     uint64
	extendedFeatures  []uint64
	aclPacketLength     uint16
	numAclPacketBuffers uint16
	leBufferSize        LeBufferSize
	leLocalFeatures     uint64
	leMaxAdvDataLength  uint16

	creditsMu sync.Mutex
	creditsCb func(handle uint16, credits uint16)
	creditsOn *module.Handler
}

func (c *Controller) ListDependencies(l *module.List) {
	l.Add(Factory)
}

func (c *Controller) Start() {
	c.hci = c.GetDependency(Factory).(*HciLayer)

	c.hci.RegisterEventHandler(EvtNumberOfCompletedPackets, c.handleNumberOfCompletedPackets, c.Handler())

	c.interrogate()
}

func (c *Controller) Stop() {
	c.hci.UnregisterEventHandler(EvtNumberOfCompletedPackets)
	c.hci = nil
}

// interrogate issues the fixed startup command sequence and blocks until
// the capability snapshot is complete. Any failure here means the
// controller is unusable.
func (c *Controller) interrogate() {
	c.must(&cmd.Reset{}, nil)

	var commands cmd.ReadLocalSupportedCommandsRP
	c.must(&cmd.ReadLocalSupportedCommands{}, &commands)
	c.supportedCommands = commands.SupportedCommands

	var version cmd.ReadLocalVersionInformationRP
	c.must(&cmd.ReadLocalVersionInformation{}, &version)
	c.localVersion = version

	var features cmd.ReadLocalSupportedFeaturesRP
	c.must(&cmd.ReadLocalSupportedFeatures{}, &features)
	c.localFeatures = features.LMPFeatures

	// Page 0 first to learn the page count, then the rest.
	var ext cmd.ReadLocalExtendedFeaturesRP
	c.must(&cmd.ReadLocalExtendedFeatures{PageNumber: 0}, &ext)
	c.extendedFeatures = []uint64{ext.ExtendedLMPFeatures}
	maxPage := ext.MaximumPageNumber
	for page := uint8(1); page <= maxPage; page++ {
		var rp cmd.ReadLocalExtendedFeaturesRP
		c.must(&cmd.ReadLocalExtendedFeatures{PageNumber: page}, &rp)
		c.extendedFeatures = append(c.extendedFeatures, rp.ExtendedLMPFeatures)
	}

	var bufSize cmd.ReadBufferSizeRP
	c.must(&cmd.ReadBufferSize{}, &bufSize)
	c.aclPacketLength = bufSize.HCACLDataPacketLength
	c.numAclPacketBuffers = bufSize.HCTotalNumACLDataPackets

	c.must(&cmd.SetEventMask{EventMask: 0x3dbff807fffbffff}, nil)

	var leBuf cmd.LEReadBufferSizeRP
	c.must(&cmd.LEReadBufferSize{}, &leBuf)
	c.leBufferSize = LeBufferSize{
		DataPacketLength:    leBuf.HCLEDataPacketLength,
		TotalNumDataPackets: leBuf.HCTotalNumLEDataPackets,
	}
	if c.leBufferSize.TotalNumDataPackets == 0 {
		// LE shares the classic buffer pool.
		logger.Debug("le buffers shared with classic pool")
		c.leBufferSize.DataPacketLength = c.aclPacketLength
		n := c.numAclPacketBuffers
		if n > 0xff {
			n = 0xff
		}
		c.leBufferSize.TotalNumDataPackets = uint8(n)
	}

	var leFeatures cmd.LEReadLocalSupportedFeaturesRP
	c.must(&cmd.LEReadLocalSupportedFeatures{}, &leFeatures)
	c.leLocalFeatures = leFeatures.LEFeatures

	c.must(&cmd.LESetEventMask{LEEventMask: 0x000000000000001F}, nil)

	if c.leLocalFeatures&leFeatureExtendedAdvertising != 0 {
		var advLen cmd.LEReadMaximumAdvertisingDataLengthRP
		c.must(&cmd.LEReadMaximumAdvertisingDataLength{}, &advLen)
		c.leMaxAdvDataLength = advLen.MaximumAdvertisingDataLength
	} else {
		c.leMaxAdvDataLength = 31
	}

	// BD_ADDR last; once it is in, the snapshot is complete.
	var bdaddr cmd.ReadBDADDRRP
	c.must(&cmd.ReadBDADDR{}, &bdaddr)
	c.localAddr = btstack.AddrFromBytes(bdaddr.BDADDR)
}

// sendSync submits a command and blocks until its complete event arrives,
// unmarshaling the return parameters into rp when given.
func (c *Controller) sendSync(q cmd.Command, rp cmd.CommandRP) error {
	done := make(chan error, 1)
	c.hci.EnqueueCommand(q, func(e evt.CommandComplete, err error) {
		if err != nil {
			done <- err
			return
		}
		b := e.ReturnParameters()
		if len(b) > 0 && b[0] != 0x00 {
			done <- btstack.ErrCommand(b[0])
			return
		}
		if rp != nil {
			done <- rp.Unmarshal(b)
			return
		}
		done <- nil
	}, c.Handler())
	return <-done
}

func (c *Controller) must(q cmd.Command, rp cmd.CommandRP) {
	err := c.sendSync(q, rp)
	assertf(err == nil, "controller interrogation 0x%04X failed: %v", q.OpCode(), err)
}

// MacAddress returns the controller's BD_ADDR.
func (c *Controller) MacAddress() btstack.Addr { return c.localAddr }

// AclPacketLength returns the classic ACL MTU.
func (c *Controller) AclPacketLength() uint16 { return c.aclPacketLength }

// NumAclPacketBuffers returns the classic ACL buffer count.
func (c *Controller) NumAclPacketBuffers() uint16 { return c.numAclPacketBuffers }

// GetLeBufferSize returns the LE ACL buffer geometry.
func (c *Controller) GetLeBufferSize() LeBufferSize { return c.leBufferSize }

// LocalFeatures returns the page-0 LMP feature mask.
func (c *Controller) LocalFeatures() uint64 { return c.localFeatures }

// ExtendedFeatures returns the feature mask of the given page, or 0 for
// pages the controller does not have.
func (c *Controller) ExtendedFeatures(page int) uint64 {
	if page < 0 || page >= len(c.extendedFeatures) {
		return 0
	}
	return c.extendedFeatures[page]
}

// LeLocalFeatures returns the LE feature mask.
func (c *Controller) LeLocalFeatures() uint64 { return c.leLocalFeatures }

// LeMaximumAdvertisingDataLength returns the maximum advertising payload.
func (c *Controller) LeMaximumAdvertisingDataLength() uint16 { return c.leMaxAdvDataLength }

// LocalVersion returns the version information block.
func (c *Controller) LocalVersion() cmd.ReadLocalVersionInformationRP { return c.localVersion }

// SupportsCommand reports bit `bit` of octet `octet` of the supported
// commands bitmap [Vol 2, Part E, 6.27].
func (c *Controller) SupportsCommand(octet, bit int) bool {
	if octet < 0 || octet >= len(c.supportedCommands) || bit < 0 || bit > 7 {
		return false
	}
	return c.supportedCommands[octet]&(1<<uint(bit)) != 0
}

// Reset issues a controller reset outside the startup sequence.
func (c *Controller) Reset() error {
	return c.sendSync(&cmd.Reset{}, nil)
}

// WriteLocalName sets the user-friendly device name.
func (c *Controller) WriteLocalName(name string) error {
	q := &cmd.WriteLocalName{}
	copy(q.LocalName[:], name)
	return c.sendSync(q, nil)
}

// ReadLocalName returns the user-friendly device name.
func (c *Controller) ReadLocalName() (string, error) {
	var rp cmd.ReadLocalNameRP
	if err := c.sendSync(&cmd.ReadLocalName{}, &rp); err != nil {
		return "", err
	}
	n := rp.LocalName[:]
	for i, b := range n {
		if b == 0 {
			n = n[:i]
			break
		}
	}
	return string(n), nil
}

// RegisterCompletedAclPacketsCallback routes every (handle, credits) pair
// of Number_Of_Completed_Packets events to cb on handler. At most one
// consumer may register.
func (c *Controller) RegisterCompletedAclPacketsCallback(cb func(handle, credits uint16), handler *module.Handler) {
	c.creditsMu.Lock()
	defer c.creditsMu.Unlock()
	assertf(c.creditsCb == nil, "completed acl packets callback already registered")
	c.creditsCb = cb
	c.creditsOn = handler
}

// UnregisterCompletedAclPacketsCallback removes the consumer.
func (c *Controller) UnregisterCompletedAclPacketsCallback() {
	c.creditsMu.Lock()
	defer c.creditsMu.Unlock()
	c.creditsCb = nil
	c.creditsOn = nil
}

func (c *Controller) handleNumberOfCompletedPackets(params []byte) {
	c.creditsMu.Lock()
	cb, on := c.creditsCb, c.creditsOn
	c.creditsMu.Unlock()
	if cb == nil {
		logger.Warn("completed packets event with no consumer registered")
		return
	}

	e := evt.NumberOfCompletedPackets(params)
	for i := 0; i < int(e.NumberOfHandles()); i++ {
		handle, err := e.ConnectionHandleWErr(i)
		if err != nil {
			logger.Warnf("truncated completed packets event: % X", params)
			return
		}
		credits := e.HCNumOfCompletedPackets(i)
		on.Post(func() { cb(handle, credits) })
	}
}
