package slip

import (
	"bytes"
	"fmt"
	"image/png"

	"ms-clinic-queue/internal/models"

	"github.com/signintech/gopdf"
	"golang.org/x/image/font/gofont/goregular"
)

const fontName = "goregular"

// PDF renders a printable slip: the ticket details and its QR code on an
// A6 page.
func (g *Generator) PDF(ticket models.Ticket) ([]byte, error) {
	qr, err := g.PNG(ticket)
	if err != nil {
		return nil, err
	}

	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: gopdf.Rect{W: 298, H: 420}}) // A6 in points
	pdf.AddPage()

	if err := pdf.AddTTFFontData(fontName, goregular.TTF); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}

	if err := pdf.SetFont(fontName, "", 20); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}
	pdf.SetXY(20, 24)
	pdf.Cell(nil, fmt.Sprintf("Token %d", ticket.TicketNumber))

	if err := pdf.SetFont(fontName, "", 10); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}
	pdf.SetXY(20, 56)
	for _, line := range []string{
		"Date: " + ticket.BusinessDay.String(),
		"Name: " + ticket.FullName,
		"Booked: " + ticket.CreatedAt.Format("15:04"),
	} {
		pdf.SetX(20)
		pdf.Cell(nil, line)
		pdf.Br(14)
	}

	img, err := png.Decode(bytes.NewReader(qr))
	if err != nil {
		return nil, fmt.Errorf("failed to decode QR code: %w", err)
	}
	if err := pdf.ImageFrom(img, 20, pdf.GetY()+10, &gopdf.Rect{W: 120, H: 120}); err != nil {
		return nil, fmt.Errorf("failed to draw QR code: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}
