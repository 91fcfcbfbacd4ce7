package gemini

// SetlistPrompt asks the model to OCR a setlist photo into a JSON track list.
const SetlistPrompt = `Read the concert setlist in this image and output it as JSON.
Return a JSON array in setlist order, one object per song: [{"title": "...", "artist": "..."}].
- Use the performing artist for every song unless the setlist names a different original artist (covers).
- If the artist is not written anywhere, infer it from the venue poster or band name, otherwise use "".
- Skip encore markers, MCs, SE/intro tapes and anything that is not a song.
- Output JSON only, no commentary.`
