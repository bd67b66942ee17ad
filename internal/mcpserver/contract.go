package mcpserver

// DesignFormatContract describes how designs are shaped and edited. LLM
// clients should read it before filling in a template.
const DesignFormatContract = `# Mailwright Design Format

A design is one filled-in email template. Every design belongs to exactly one
template from the catalog (see the list_templates tool).

## Structure

` + "```" + `json
{
  "id": "3f6c0e0a-...",
  "projectName": "Spring webinar",
  "templateKey": "webinar-invite",
  "fieldValues": {"headline": "Scaling Postgres", "cta_url": "https://example.com/register"},
  "imageSlots": {"hero": "/images/9b1d.png"},
  "creativeDirection": "Calm, technical, no exclamation marks.",
  "folderId": null,
  "status": "draft",
  "savedAt": "2026-03-14T09:30:00Z"
}
` + "```" + `

## Rules

1. **Select a template first.** Edits made before select_template are discarded.
2. **Only declared keys count.** Field ids and image slots come from the
   template. Unknown keys are rejected; keys of another template are dropped
   when the design is saved.
3. **Text fields** respect ` + "`" + `max_length` + "`" + `. URL fields must start with
   ` + "`" + `http://` + "`" + ` or ` + "`" + `https://` + "`" + `.
4. **Required fields** may be empty while drafting. Export and share refuse a
   design with missing required fields.
5. **Images** go into image slots through paste_image with a data URI or an
   https URL. The image is re-hosted; never put raw data URIs in text fields.
   Supported formats: png, jpg, jpeg, gif, webp, svg.
6. **Size.** A saved design must serialize to at most 950000 bytes.
7. **Loads replace everything.** load_design discards unsaved edits. Check
   get_session's ` + "`" + `dirty` + "`" + ` flag and save first when it is true.

## Saving

save_design writes to the design's current target. A design with no target
needs a destination: ` + "`" + `server` + "`" + ` (a new stored design), ` + "`" + `file` + "`" + `
(a path under the designs directory, ending in ` + "`" + `.json` + "`" + `) or ` + "`" + `local` + "`" + `
(a local draft key).
`
