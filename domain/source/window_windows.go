//go:build windows

package source

// Window capture through GDI. Open binds a memory DC and a top-down DIB
// sized to the window; each Capture asks the window to PrintWindow itself
// into the DIB, converts BGRX->RGBA and crops the frame to the client area.

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"unsafe"

	"github.com/soocke/frame-grabber-go/domain/capture"
	"github.com/soocke/frame-grabber-go/images"
	"golang.org/x/sys/windows"
)

const (
	dibRGBColors = 0
	biRgb        = 0
	pwClientOnly = 0
)

var (
	user32                 = windows.NewLazySystemDLL("user32.dll")
	gdi32                  = windows.NewLazySystemDLL("gdi32.dll")
	procFindWindowW        = user32.NewProc("FindWindowW")
	procIsWindow           = user32.NewProc("IsWindow")
	procGetWindowRect      = user32.NewProc("GetWindowRect")
	procGetClientRect      = user32.NewProc("GetClientRect")
	procClientToScreen     = user32.NewProc("ClientToScreen")
	procGetWindowDC        = user32.NewProc("GetWindowDC")
	procReleaseDC          = user32.NewProc("ReleaseDC")
	procPrintWindow        = user32.NewProc("PrintWindow")
	procCreateCompatibleDC = gdi32.NewProc("CreateCompatibleDC")
	procDeleteDC           = gdi32.NewProc("DeleteDC")
	procSelectObject       = gdi32.NewProc("SelectObject")
	procCreateDIBSection   = gdi32.NewProc("CreateDIBSection")
	procDeleteObject       = gdi32.NewProc("DeleteObject")
)

type winRect struct{ Left, Top, Right, Bottom int32 }

type winPoint struct{ X, Y int32 }

type bitmapInfoHeader struct {
	BiSize          uint32
	BiWidth         int32
	BiHeight        int32
	BiPlanes        uint16
	BiBitCount      uint16
	BiCompression   uint32
	BiSizeImage     uint32
	BiXPelsPerMeter int32
	BiYPelsPerMeter int32
	BiClrUsed       uint32
	BiClrImportant  uint32
}

type bitmapInfo struct {
	Header bitmapInfoHeader
	_      [4]byte
}

// windowHandle owns the DCs and DIB bound to one window.
type windowHandle struct {
	mu       sync.Mutex
	hwnd     uintptr
	windowDC uintptr
	memDC    uintptr
	bmp      uintptr
	prev     uintptr
	bits     unsafe.Pointer
	w, h     int
	insets   images.Insets
	closed   bool
}

// OpenWindow hooks the top-level window whose title equals title.
func OpenWindow(title string) (capture.Handle, error) {
	if title == "" {
		return nil, errors.New("window: empty title")
	}
	p, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return nil, fmt.Errorf("window %q: %w", title, err)
	}
	hwnd, _, _ := procFindWindowW.Call(0, uintptr(unsafe.Pointer(p)))
	if hwnd == 0 {
		return nil, fmt.Errorf("window %q not found", title)
	}
	wr, insets, err := windowGeometry(hwnd)
	if err != nil {
		return nil, fmt.Errorf("window %q: %w", title, err)
	}
	h := &windowHandle{hwnd: hwnd, w: int(wr.Right - wr.Left), h: int(wr.Bottom - wr.Top), insets: insets}
	if h.w <= 0 || h.h <= 0 {
		return nil, fmt.Errorf("window %q: invalid size %dx%d", title, h.w, h.h)
	}
	if err := h.bind(); err != nil {
		h.Close()
		return nil, fmt.Errorf("window %q: %w", title, err)
	}
	return h, nil
}

// windowGeometry returns the window rectangle and the border insets that
// separate it from the client area.
func windowGeometry(hwnd uintptr) (winRect, images.Insets, error) {
	var wr, cr winRect
	if ok, _, err := procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&wr))); ok == 0 {
		return wr, images.Insets{}, fmt.Errorf("GetWindowRect: %w", err)
	}
	if ok, _, err := procGetClientRect.Call(hwnd, uintptr(unsafe.Pointer(&cr))); ok == 0 {
		return wr, images.Insets{}, fmt.Errorf("GetClientRect: %w", err)
	}
	tl := winPoint{X: cr.Left, Y: cr.Top}
	br := winPoint{X: cr.Right, Y: cr.Bottom}
	procClientToScreen.Call(hwnd, uintptr(unsafe.Pointer(&tl)))
	procClientToScreen.Call(hwnd, uintptr(unsafe.Pointer(&br)))
	return wr, images.Insets{
		Left:   int(tl.X - wr.Left),
		Top:    int(tl.Y - wr.Top),
		Right:  int(wr.Right - br.X),
		Bottom: int(wr.Bottom - br.Y),
	}, nil
}

func (h *windowHandle) bind() error {
	h.windowDC, _, _ = procGetWindowDC.Call(h.hwnd)
	if h.windowDC == 0 {
		return errors.New("GetWindowDC failed")
	}
	h.memDC, _, _ = procCreateCompatibleDC.Call(h.windowDC)
	if h.memDC == 0 {
		return errors.New("CreateCompatibleDC failed")
	}
	var bi bitmapInfo
	bi.Header.BiSize = uint32(unsafe.Sizeof(bi.Header))
	bi.Header.BiWidth = int32(h.w)
	bi.Header.BiHeight = -int32(h.h) // top-down
	bi.Header.BiPlanes = 1
	bi.Header.BiBitCount = 32
	bi.Header.BiCompression = biRgb
	bi.Header.BiSizeImage = uint32(h.w * h.h * 4)
	h.bmp, _, _ = procCreateDIBSection.Call(h.memDC, uintptr(unsafe.Pointer(&bi)), dibRGBColors, uintptr(unsafe.Pointer(&h.bits)), 0, 0)
	if h.bmp == 0 || h.bits == nil {
		return errors.New("CreateDIBSection failed")
	}
	h.prev, _, _ = procSelectObject.Call(h.memDC, h.bmp)
	if h.prev == 0 || h.prev == ^uintptr(0) {
		h.prev = 0
		return errors.New("SelectObject failed")
	}
	return nil
}

// Capture renders the window into the bound DIB. A closed or resized window
// fails so the worker re-hooks it.
func (h *windowHandle) Capture() (image.Image, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errors.New("window handle closed")
	}
	if ok, _, _ := procIsWindow.Call(h.hwnd); ok == 0 {
		return nil, errors.New("window destroyed")
	}
	wr, _, err := windowGeometry(h.hwnd)
	if err != nil {
		return nil, err
	}
	if int(wr.Right-wr.Left) != h.w || int(wr.Bottom-wr.Top) != h.h {
		return nil, fmt.Errorf("window resized from %dx%d", h.w, h.h)
	}
	if ok, _, _ := procPrintWindow.Call(h.hwnd, h.memDC, pwClientOnly); ok == 0 {
		return nil, errors.New("PrintWindow failed")
	}

	pixLen := h.w * h.h * 4
	src := unsafe.Slice((*byte)(h.bits), pixLen)
	dst := image.NewRGBA(image.Rect(0, 0, h.w, h.h))
	for i := 0; i < pixLen; i += 4 {
		dst.Pix[i+0] = src[i+2]
		dst.Pix[i+1] = src[i+1]
		dst.Pix[i+2] = src[i+0]
		dst.Pix[i+3] = 0xFF
	}
	client, _, err := images.CropInsets(dst, h.insets)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Close releases the GDI objects bound to the window.
func (h *windowHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.memDC != 0 && h.prev != 0 {
		procSelectObject.Call(h.memDC, h.prev)
	}
	if h.bmp != 0 {
		procDeleteObject.Call(h.bmp)
	}
	if h.memDC != 0 {
		procDeleteDC.Call(h.memDC)
	}
	if h.windowDC != 0 {
		procReleaseDC.Call(h.hwnd, h.windowDC)
	}
	return nil
}
