package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pantrychef/internal/recipe"
)

const maxBodyBytes = 32 << 20

type imagePayload struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateBody struct {
	Images             []imagePayload `json:"images"`
	Complexity         string         `json:"complexity"`
	DietaryPreferences []string       `json:"dietaryPreferences"`
	OtherPreferences   string         `json:"otherPreferences"`
}

// decodeGenerationRequest reads a JSON or multipart body. Shape checks such
// as an empty image list are left to the generator.
func decodeGenerationRequest(c *gin.Context) (recipe.GenerationRequest, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	if c.ContentType() == "multipart/form-data" {
		return decodeMultipart(c)
	}
	return decodeJSON(c.Request.Body)
}

func decodeJSON(r io.Reader) (recipe.GenerationRequest, error) {
	var body generateBody
	if err := json.NewDecoder(r).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return recipe.GenerationRequest{}, bodyError(err)
	}

	req := recipe.GenerationRequest{
		Complexity:         recipe.ParseComplexity(body.Complexity),
		DietaryPreferences: body.DietaryPreferences,
		OtherPreferences:   body.OtherPreferences,
	}

	for i, p := range body.Images {
		img, err := decodeImage(i, p)
		if err != nil {
			return recipe.GenerationRequest{}, err
		}
		req.Images = append(req.Images, img)
	}
	return req, nil
}

func decodeImage(i int, p imagePayload) (recipe.Image, error) {
	mimeType := strings.TrimSpace(p.MIMEType)
	data := strings.TrimSpace(p.Data)

	// data:<mime>;base64,<payload>
	if strings.HasPrefix(data, "data:") {
		header, payload, found := strings.Cut(data, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return recipe.Image{}, recipe.Invalid("Image %d is not valid base64.", i+1)
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		}
		data = payload
	}

	if data == "" {
		return recipe.Image{MIMEType: mimeType}, nil
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(data)
	}
	if err != nil {
		return recipe.Image{}, recipe.Invalid("Image %d is not valid base64.", i+1)
	}
	return recipe.Image{MIMEType: mimeType, Data: raw}, nil
}

func decodeMultipart(c *gin.Context) (recipe.GenerationRequest, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return recipe.GenerationRequest{}, bodyError(err)
	}

	req := recipe.GenerationRequest{Complexity: recipe.ParseComplexity(firstValue(form, "complexity"))}
	req.OtherPreferences = firstValue(form, "otherPreferences")
	for _, v := range form.Value["dietaryPreferences"] {
		req.DietaryPreferences = append(req.DietaryPreferences, strings.Split(v, ",")...)
	}

	files := append([]*multipart.FileHeader{}, form.File["images"]...)
	files = append(files, form.File["image"]...)
	for _, fh := range files {
		img, err := readFormImage(fh)
		if err != nil {
			return recipe.GenerationRequest{}, err
		}
		req.Images = append(req.Images, img)
	}
	return req, nil
}

func readFormImage(fh *multipart.FileHeader) (recipe.Image, error) {
	src, err := fh.Open()
	if err != nil {
		return recipe.Image{}, recipe.Invalid("Could not read uploaded file %q.", fh.Filename)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return recipe.Image{}, recipe.Invalid("Could not read uploaded file %q.", fh.Filename)
	}

	mimeType := strings.TrimSpace(fh.Header.Get("Content-Type"))
	if (mimeType == "" || mimeType == "application/octet-stream") && len(data) > 0 {
		mimeType = http.DetectContentType(data)
	}
	return recipe.Image{MIMEType: mimeType, Data: data}, nil
}

func firstValue(form *multipart.Form, key string) string {
	if vs := form.Value[key]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &recipe.Error{Kind: recipe.KindInvalidInput, Message: "Request body too large.", Err: err}
	}
	return &recipe.Error{Kind: recipe.KindInvalidInput, Message: "Invalid request body.", Err: err}
}
