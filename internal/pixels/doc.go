// Package pixels decodes raw camera frame payloads into numeric images.
//
// Decoding is pure: a format tag selects element width and byte order, and a
// flat buffer is reshaped into row-major height x width order. Grayscale only;
// no channel dimension exists.
package pixels
